// Package restore rebuilds the segment layout from the store at boot.
package restore

import (
	"github.com/rs/zerolog"

	"github.com/coreman2200/stripctl/internal/diagnostics"
	"github.com/coreman2200/stripctl/internal/store"
	"github.com/coreman2200/stripctl/model"
)

// Configurer is the part of the strip driver the restorer needs.
type Configurer interface {
	ConfigureSegment(index, length int) error
	Slots() int
	Layout() model.Layout
}

// Run reads every slot in ascending order and configures it. A failed read
// counts as length 0 and a failed configure is skipped; neither stops the
// restore.
func Run(st store.Store, drv Configurer, log zerolog.Logger) model.Layout {
	return RunWith(st, drv, diagnostics.Discard{}, log)
}

// RunWith is Run with diagnostics published to pub.
func RunWith(st store.Store, drv Configurer, pub diagnostics.Publisher, log zerolog.Logger) model.Layout {
	log = log.With().Str("component", "restore").Logger()
	for i := 0; i < drv.Slots(); i++ {
		length, err := st.SegmentLength(i)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("store read failed, using length 0")
			pub.Publish(diagnostics.StoreRead(i, err))
			length = 0
		}
		if err := drv.ConfigureSegment(i, length); err != nil {
			log.Error().Err(err).Int("index", i).Int("length", length).Msg("configure failed")
			continue
		}
		log.Debug().Int("index", i).Int("length", length).Msg("segment restored")
	}
	l := drv.Layout()
	log.Info().Ints("lengths", l.Lengths()).Int("total", l.Total()).Msg("layout restored")
	return l
}
