package present

import (
	"testing"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/snapshot"
)

func TestStyleFor_Brackets(t *testing.T) {
	cases := []struct {
		age   int
		color string
		label string
	}{
		{0, "#ff0000", "0-5"},
		{5, "#ff0000", "0-5"},
		{9, "#ff0000", "0-5"},
		{10, "#ff6600", "5-15"},
		{15, "#ff6600", "5-15"},
		{20, "#ffff00", "15-30"},
		{30, "#ffff00", "15-30"},
		{35, "#ffffff", "30-45"},
		{45, "#ffffff", "30-45"},
		{50, "#87CEEB", "45-60"},
		{600, "#87CEEB", "45-60"},
		{-5, "#ff0000", "0-5"},
	}
	for _, tc := range cases {
		got := StyleFor(tc.age)
		if got.Color != tc.color || got.Label != tc.label {
			t.Fatalf("StyleFor(%d)=%+v，期望 %s/%s", tc.age, got, tc.color, tc.label)
		}
	}
}

func TestLegend_FiveTiers(t *testing.T) {
	l := Legend()
	if len(l) != 5 || l[0].Tier != 0 || l[4].Color != "#87CEEB" {
		t.Fatalf("图例不符合预期：%+v", l)
	}
}

func TestLayer_FailedCycleKeepsPublished(t *testing.T) {
	l := NewLayer()
	ok := domain.CycleReport{RunID: "a", Stage: domain.StageSerialized, Strikes: []domain.GeoStrike{{Lat: 7.2, Lng: -65.35, AgeMinutes: 15}}}
	l.Update(ok)

	l.Update(domain.CycleReport{RunID: "b", Stage: domain.StageFailed, ErrorCode: domain.ErrCodeFetchFailed})

	m := l.Markers()
	if len(m) != 1 || m[0].Style.Color != "#ff6600" {
		t.Fatalf("失败的 cycle 不应替换标记：%+v", m)
	}
	st := l.Status()
	if st.Last == nil || st.Last.RunID != "b" || st.Published == nil || st.Published.RunID != "a" {
		t.Fatalf("状态不符合预期：%+v", st)
	}
}

func TestLayer_SuccessReplacesWholesale(t *testing.T) {
	l := NewLayer()
	l.Update(domain.CycleReport{Stage: domain.StageSerialized, Strikes: []domain.GeoStrike{{Lat: 1}, {Lat: 2}}})
	l.Update(domain.CycleReport{Stage: domain.StageSerialized, Strikes: []domain.GeoStrike{}})
	if len(l.Markers()) != 0 {
		t.Fatalf("零个闪电的成功 cycle 应清空标记层")
	}
}

func TestLayer_ExportMatchesSnapshotShape(t *testing.T) {
	l := NewLayer()
	in := []domain.GeoStrike{{Lat: 7.2, Lng: -65.35, AgeMinutes: 15}}
	l.Update(domain.CycleReport{Stage: domain.StageSerialized, Strikes: in})

	got, err := l.Export()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want, _ := snapshot.Encode(in)
	if string(got) != string(want) {
		t.Fatalf("导出内容应与快照一致：\n%s\n%s", got, want)
	}
}

func TestLayer_EmptyExport(t *testing.T) {
	b, err := NewLayer().Export()
	if err != nil || string(b) != "[]\n" {
		t.Fatalf("空导出应为 []：%q err=%v", b, err)
	}
}
