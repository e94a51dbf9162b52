package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestCycleReport_Finalize_UTCAndNonNilStrikes(t *testing.T) {
	r := CycleReport{
		Stage:      StageSerialized,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", -4*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", -4*3600)),
		Total:      3,
	}

	r.Finalize()

	if r.Strikes == nil {
		t.Fatalf("Finalize 后 Strikes 不应为 nil")
	}
	if r.Valid != 0 {
		t.Fatalf("期望 valid=0，实际=%d", r.Valid)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"started_at":"2026-02-09T14:00:00Z"`)) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if bytes.Contains(b, []byte(`"lat"`)) {
		t.Fatalf("strikes 不应出现在 report JSON 中：%s", string(b))
	}
}

func TestCycleReport_Finalize_FailedKeepsCounts(t *testing.T) {
	r := CycleReport{Stage: StageFailed, Total: 5, Valid: 2}
	r.Finalize()
	if r.OK() {
		t.Fatalf("failed cycle 不应 OK")
	}
	if r.Valid != 2 {
		t.Fatalf("failed cycle 不应重算 valid：%d", r.Valid)
	}
}

func TestCalibrationBounds_Contains_Inclusive(t *testing.T) {
	b := CalibrationBounds{North: 14.2, South: 0.2, West: -75.8, East: -54.9}

	cases := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"north-east corner", 14.2, -54.9, true},
		{"south-west corner", 0.2, -75.8, true},
		{"center", 7.2, -65.35, true},
		{"north+1", 15.2, -60, false},
		{"south-1", -0.8, -60, false},
		{"east+1", 7, -53.9, false},
		{"west-1", 7, -76.8, false},
	}
	for _, tc := range cases {
		if got := b.Contains(tc.lat, tc.lng); got != tc.want {
			t.Fatalf("%s: Contains(%v,%v)=%v，期望 %v", tc.name, tc.lat, tc.lng, got, tc.want)
		}
	}
}

func TestCalibrationBounds_Validate(t *testing.T) {
	if err := (CalibrationBounds{North: 14.2, South: 0.2, West: -75.8, East: -54.9}).Validate(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := (CalibrationBounds{North: 0.2, South: 14.2, West: -75.8, East: -54.9}).Validate(); err == nil {
		t.Fatalf("north<=south 应报错")
	}
	if err := (CalibrationBounds{North: 14.2, South: 0.2, West: -54.9, East: -75.8}).Validate(); err == nil {
		t.Fatalf("east<=west 应报错")
	}
	if err := (PixelFrame{Width: 0, Height: 600}).Validate(); err == nil {
		t.Fatalf("width=0 应报错")
	}
}
