package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
)

// sender writes messages to one connected client.
type sender interface {
	send(ctx context.Context, data []byte) error
	keepalive(ctx context.Context) error
}

// run sends the metadata message and then one keyframe batch per step until
// ctx is done or a write fails.
func (h *Handler) run(ctx context.Context, s sender, p params, ip string) {
	if meta, ok := h.metadata(); ok {
		data, err := json.Marshal(meta)
		if err == nil {
			err = s.send(ctx, data)
		}
		if err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	ticker := time.NewTicker(p.step)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case t := <-ticker.C:
			kf := h.cache.Get(t)
			if kf == nil {
				metrics.IncStreamErrors("cache_miss")
				h.logger.Debug("stream cache miss",
					"timestamp", h.cache.RoundToStep(t).UTC().Format(time.RFC3339),
					"remote_ip", ip,
				)
				continue
			}

			var trailKFs []*propagation.Keyframe
			if p.trail > 0 {
				trailKFs = h.cache.GetRecent(t, p.trail)
			}

			data, err := json.Marshal(buildBatchMessage(kf, trailKFs))
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := s.send(ctx, data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}

			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := s.keepalive(ctx); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) metadata() (metadataMessage, bool) {
	ds := h.store.Get()
	if ds == nil {
		return metadataMessage{}, false
	}
	meta := metadataMessage{
		Type:         "metadata",
		DatasetEpoch: ds.FetchedAt.UTC().Format(time.RFC3339),
		Source:       ds.Source,
		CatalogAge:   int(time.Since(ds.FetchedAt).Seconds()),
		BodyCount:    len(ds.Bodies),
	}
	if h.clock != nil {
		st := h.clock.Snapshot()
		meta.JulianDate = st.JulianAt(time.Now())
		meta.Speed = st.Speed
		meta.Paused = st.Paused
	}
	return meta, true
}

// buildBatchMessage formats a keyframe into the batch payload.
// If trailKFs is non-empty, each body includes past positions (oldest first).
func buildBatchMessage(kf *propagation.Keyframe, trailKFs []*propagation.Keyframe) keyframeBatchMessage {
	var trailIndex map[string][][3]float64
	if len(trailKFs) > 0 {
		trailIndex = make(map[string][][3]float64, len(kf.Bodies))
		for _, tkf := range trailKFs {
			for _, b := range tkf.Bodies {
				trailIndex[b.Name] = append(trailIndex[b.Name], b.Position)
			}
		}
	}

	bodies := make([]bodyPayload, len(kf.Bodies))
	for i, b := range kf.Bodies {
		bodies[i] = bodyPayload{
			N: b.Name,
			K: string(b.Kind),
			P: b.Position,
		}
		if trailIndex != nil {
			if tr, ok := trailIndex[b.Name]; ok {
				bodies[i].Tr = tr
			}
		}
	}
	return keyframeBatchMessage{
		Type:   "keyframe_batch",
		T:      kf.Timestamp.UTC().Format(time.RFC3339),
		JD:     kf.JulianDate,
		Frame:  "ECLIPJ2000",
		Bodies: bodies,
	}
}

// Message payload types.

type metadataMessage struct {
	Type         string  `json:"type"`
	DatasetEpoch string  `json:"dataset_epoch"`
	Source       string  `json:"source"`
	CatalogAge   int     `json:"catalog_age_seconds"`
	BodyCount    int     `json:"body_count"`
	JulianDate   float64 `json:"jd"`
	Speed        float64 `json:"speed"`
	Paused       bool    `json:"paused"`
}

type keyframeBatchMessage struct {
	Type   string        `json:"type"`
	T      string        `json:"t"`
	JD     float64       `json:"jd"`
	Frame  string        `json:"frame"`
	Bodies []bodyPayload `json:"bodies"`
}

type bodyPayload struct {
	N  string       `json:"n"`
	K  string       `json:"k"`
	P  [3]float64   `json:"p"`
	Tr [][3]float64 `json:"tr,omitempty"`
}
