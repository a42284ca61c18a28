package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"sensorwatch/internal/app"
	"sensorwatch/internal/bus"
	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

func TestHandler_AlwaysSucceeds(t *testing.T) {
	var got []bus.Record
	h := bus.BatchHandlerFunc(func(ctx context.Context, records []bus.Record) bus.BatchResult {
		got = records
		var res bus.BatchResult
		res.Record(0, records[0].ID, errors.New("item failed"))
		res.Record(1, records[1].ID, nil)
		return res
	})

	event := events.SNSEvent{Records: []events.SNSEventRecord{
		{SNS: events.SNSEntity{MessageID: "m1", Message: `{"sensor_id":"a"}`}},
		{SNS: events.SNSEntity{MessageID: "m2", Message: `{"sensor_id":"b"}`}},
	}}

	resp, err := newHandler(app.StageNotifier, h)(context.Background(), event)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if resp.StatusCode != 200 || resp.Body != "Successfully processed alerts" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(got) != 2 || got[0].ID != "m1" || string(got[1].Payload) != `{"sensor_id":"b"}` {
		t.Errorf("records not mapped from event: %+v", got)
	}
}

const (
	sensorTopicArn = "arn:aws:sns:us-east-2:123456789012:iot-sensor-data"
	alertTopicArn  = "arn:aws:sns:us-east-2:123456789012:iot-alerts"
)

// fakeSNS answers Publish calls and keeps their form values
type fakeSNS struct {
	mu        sync.Mutex
	published []url.Values
}

func (f *fakeSNS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.published = append(f.published, r.PostForm)
	n := len(f.published)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<PublishResponse xmlns="http://sns.amazonaws.com/doc/2010-03-31/">`+
		`<PublishResult><MessageId>sns-%d</MessageId></PublishResult>`+
		`<ResponseMetadata><RequestId>req-%d</RequestId></ResponseMetadata></PublishResponse>`, n, n)
}

func TestHandler_ProcessorPublishesAlertsToSNS(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	sns := &fakeSNS{}
	srv := httptest.NewServer(sns)
	defer srv.Close()

	cfg := &config.Config{
		Bus:     config.BusConfig{Kind: config.BusSNS, AWSRegion: "us-east-2", SNSEndpoint: srv.URL},
		Kafka:   config.KafkaConfig{SensorTopic: sensorTopicArn, AlertTopic: alertTopicArn},
		Storage: config.StorageConfig{Backend: "sqlite", SQLitePath: ":memory:", Table: "sensor_readings"},
		Email:   config.EmailConfig{Mailer: "log"},
		Logging: config.LoggingConfig{Level: "info"},
	}

	ctx := context.Background()
	sh, err := app.NewStageHandler(ctx, cfg, app.StageProcessor)
	if err != nil {
		t.Fatalf("NewStageHandler failed: %v", err)
	}
	defer sh.Close()

	event := events.SNSEvent{Records: []events.SNSEventRecord{
		{SNS: events.SNSEntity{
			MessageID: "m1",
			TopicArn:  sensorTopicArn,
			Message:   `{"sensor_id":"sensor-001","temperature":35.5,"humidity":45,"location":"Room 1"}`,
		}},
		{SNS: events.SNSEntity{
			MessageID: "m2",
			TopicArn:  sensorTopicArn,
			Message:   `{"sensor_id":"sensor-002","temperature":22,"humidity":50,"location":"Room 2"}`,
		}},
	}}

	resp, err := newHandler(app.StageProcessor, sh.Handler)(ctx, event)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if resp.StatusCode != 200 || resp.Body != "Successfully processed sensor data" {
		t.Errorf("unexpected response: %+v", resp)
	}

	sns.mu.Lock()
	defer sns.mu.Unlock()
	if len(sns.published) != 1 {
		t.Fatalf("expected 1 alert published, got %d", len(sns.published))
	}

	got := sns.published[0]
	if got.Get("Action") != "Publish" || got.Get("TopicArn") != alertTopicArn {
		t.Errorf("unexpected publish call: %v", got)
	}
	if got.Get("Subject") != "IoT Sensor Alert: HIGH_TEMPERATURE" {
		t.Errorf("unexpected subject %q", got.Get("Subject"))
	}

	var a models.Alert
	if err := json.Unmarshal([]byte(got.Get("Message")), &a); err != nil {
		t.Fatalf("message is not an alert: %v", err)
	}
	if a.Type != models.AlertHighTemperature || a.SensorID != "sensor-001" || a.Value != 35.5 {
		t.Errorf("unexpected alert: %+v", a)
	}
}
