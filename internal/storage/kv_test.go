package storage

import (
	"bytes"
	"testing"
)

func newTestKV(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetAbsentKey(t *testing.T) {
	s := newTestKV(t)

	data, err := s.Get(KeyPatients)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil for absent key, got %q", data)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestKV(t)

	want := []byte(`{"hello":"world"}`)
	if err := s.Set(KeySettings, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(KeySettings)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDelete(t *testing.T) {
	s := newTestKV(t)

	if err := s.Set(KeyAlerts, []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Delete(KeyAlerts); err != nil {
		t.Fatalf("delete: %v", err)
	}

	data, err := s.Get(KeyAlerts)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil after delete, got %q", data)
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	s := newTestKV(t)

	if err := s.Delete(KeyBackupData); err != nil {
		t.Errorf("delete absent key: %v", err)
	}
}

func TestKeysCoversAllCollections(t *testing.T) {
	keys := Keys()
	want := []string{
		KeyPatients,
		KeyAlerts,
		KeySettings,
		KeyPatternConfig,
		KeyMedicineList,
		KeyBackupData,
	}

	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], k)
		}
	}
}
