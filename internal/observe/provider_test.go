package observe

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestNewResource(t *testing.T) {
	res, err := newResource(ProviderConfig{ServiceVersion: "1.2.3", DeviceTier: "low"})
	if err != nil {
		t.Fatalf("newResource returned %v", err)
	}

	attrs := make(map[attribute.Key]string)
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if got := attrs["service.name"]; got != "tacetd" {
		t.Errorf("service.name = %q, want default tacetd", got)
	}
	if got := attrs["service.version"]; got != "1.2.3" {
		t.Errorf("service.version = %q", got)
	}
	if got := attrs["tacet.device.tier"]; got != "low" {
		t.Errorf("tacet.device.tier = %q, want low", got)
	}
}

func TestNewResource_OmitsEmptyTier(t *testing.T) {
	res, err := newResource(ProviderConfig{ServiceName: "tacetd-test"})
	if err != nil {
		t.Fatalf("newResource returned %v", err)
	}
	for _, kv := range res.Attributes() {
		if kv.Key == "tacet.device.tier" {
			t.Error("device tier attribute present without a configured tier")
		}
	}
}
