package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"
)

func randomHexID() string {
	key := make([]byte, 16)
	rand.Read(key)
	return hex.EncodeToString(key)
}

// EmitRequest is the synthetic wire shape this tool produces: an arbitrary
// JSON object, decoded downstream by schema.PassthroughCodec. A caller may
// set Key to control partition assignment; an empty key gets a generated id.
type EmitRequest struct {
	Key     string         `json:"key,omitempty"`
	Payload map[string]any `json:"payload"`
}

type EmitResponse struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

type EmitBatchRequest struct {
	Records []EmitRequest `json:"records"`
}

type EmitBatchResponse struct {
	Accepted int            `json:"accepted"`
	Records  []EmitResponse `json:"records"`
}

var (
	recordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "producer_sim_records_emitted_total",
			Help: "Total number of synthetic records produced, partitioned by status",
		},
		[]string{"status"},
	)
	kafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "producer_sim_kafka_publish_seconds",
			Help:    "Time spent publishing synthetic records to Kafka",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func (s *Server) toRecord(req EmitRequest) (*kgo.Record, string, error) {
	id := req.Key
	if id == "" {
		id = randomHexID()
	}
	data, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, "", err
	}
	return &kgo.Record{
		Topic: s.cfg.KafkaTopic,
		Key:   []byte(id),
		Value: data,
	}, id, nil
}

func (s *Server) handleEmit(c echo.Context) error {
	var req EmitRequest
	if err := c.Bind(&req); err != nil {
		recordsEmitted.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	record, id, err := s.toRecord(req)
	if err != nil {
		recordsEmitted.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.publish(c.Request().Context(), record); err != nil {
		recordsEmitted.WithLabelValues("error").Inc()
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to publish record")
	}

	recordsEmitted.WithLabelValues("accepted").Inc()
	return c.JSON(http.StatusAccepted, EmitResponse{ID: id, Accepted: true})
}

func (s *Server) handleEmitBatch(c echo.Context) error {
	var req EmitBatchRequest
	if err := c.Bind(&req); err != nil {
		recordsEmitted.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Records) == 0 {
		recordsEmitted.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "records is required")
	}

	responses := make([]EmitResponse, len(req.Records))
	records := make([]*kgo.Record, 0, len(req.Records))
	recordIndex := make(map[*kgo.Record]int, len(req.Records))

	for i, item := range req.Records {
		record, id, err := s.toRecord(item)
		if err != nil {
			recordsEmitted.WithLabelValues("rejected").Inc()
			responses[i] = EmitResponse{Accepted: false, Error: err.Error()}
			continue
		}
		records = append(records, record)
		recordIndex[record] = i
		responses[i] = EmitResponse{ID: id, Accepted: true}
	}

	if len(records) == 0 {
		return c.JSON(http.StatusAccepted, EmitBatchResponse{Records: responses})
	}

	results, err := s.publishAll(c.Request().Context(), records)
	if err != nil {
		recordsEmitted.WithLabelValues("error").Add(float64(len(records)))
		for _, record := range records {
			if idx, ok := recordIndex[record]; ok {
				responses[idx].Accepted = false
				responses[idx].Error = "failed to publish record"
			}
		}
		return c.JSON(http.StatusServiceUnavailable, EmitBatchResponse{Records: responses})
	}

	accepted := 0
	for _, result := range results {
		idx, ok := recordIndex[result.Record]
		if !ok {
			continue
		}
		if result.Err != nil {
			responses[idx].Accepted = false
			responses[idx].Error = result.Err.Error()
			recordsEmitted.WithLabelValues("error").Inc()
			continue
		}
		accepted++
		recordsEmitted.WithLabelValues("accepted").Inc()
	}

	return c.JSON(http.StatusAccepted, EmitBatchResponse{Accepted: accepted, Records: responses})
}

func (s *Server) publish(ctx context.Context, record *kgo.Record) error {
	results, err := s.publishAll(ctx, []*kgo.Record{record})
	if err != nil {
		return err
	}
	return results.FirstErr()
}

func (s *Server) publishAll(ctx context.Context, records []*kgo.Record) (kgo.ProduceResults, error) {
	start := time.Now()
	defer func() {
		kafkaPublishDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.producer.ProduceSync(ctx, records...), nil
}
