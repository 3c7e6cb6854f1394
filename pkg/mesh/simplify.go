package mesh

import (
	"errors"

	"go.uber.org/zap"
)

// CollapseShort collapses edges shorter than maxLen until none is left or
// every remaining short edge refuses to collapse. Edges are visited in
// iteration order and the sweep repeats while it makes progress. It returns
// the number of successful collapses.
func (m *Mesh) CollapseShort(maxLen float64) int {
	collapsed, skipped := 0, 0
	for {
		progress := false
		skipped = 0
		for _, e := range m.Edges() {
			if !m.HasEdge(e) || m.EdgeLength(e) >= maxLen {
				continue
			}
			if _, err := m.CollapseEdge(e); err != nil {
				if errors.Is(err, ErrSelfLoop) || errors.Is(err, ErrCycleCorrupt) {
					skipped++
					continue
				}
				m.log.Error("unexpected collapse failure", zap.Stringer("edge", e), zap.Error(err))
				skipped++
				continue
			}
			collapsed++
			progress = true
		}
		if !progress {
			break
		}
	}
	m.log.Info("collapsed short edges",
		zap.String("mesh", m.name),
		zap.Float64("max_length", maxLen),
		zap.Int("collapsed", collapsed),
		zap.Int("skipped", skipped))
	return collapsed
}
