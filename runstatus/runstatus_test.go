package runstatus

import (
	"path/filepath"
	"testing"

	"gopkg.in/guregu/null.v3"
)

func TestMethodFromString(t *testing.T) {
	for _, v := range []struct {
		Value  string
		Method Method
		OK     bool
	}{
		{"noob", MethodNoob, true},
		{"SWAN", MethodSwan, true},
		{"Illumina", MethodIllumina, true},
		{"raw", MethodRaw, true},
		{"funnorm", "", false},
		{"", "", false},
	} {
		got, err := MethodFromString(v.Value)
		if v.OK && err != nil {
			t.Fatalf("MethodFromString(%q): unexpected error %v", v.Value, err)
		}
		if !v.OK && err == nil {
			t.Fatalf("MethodFromString(%q): expected an error", v.Value)
		}
		if got != v.Method {
			t.Fatalf("MethodFromString(%q) = %q, expected %q", v.Value, got, v.Method)
		}
	}
}

func TestPath(t *testing.T) {
	for _, v := range []struct {
		DownsizeTo string
		Expected   string
	}{
		{"", "201234_R01C01_status.json"},
		{NoDownsizing, "201234_R01C01_status.json"},
		{"EPIC_v2_to_HM450K", "201234_R01C01_status_EPIC_v2_to_HM450K.json"},
	} {
		got := Path("201234_R01C01", "/out", v.DownsizeTo)
		if got != filepath.Join("/out", v.Expected) {
			t.Fatalf("Path(downsizeTo=%q) = %q, expected %q", v.DownsizeTo, got, v.Expected)
		}
	}
}

func TestStatusRoundTrip(t *testing.T) {
	dir := t.TempDir()

	status := &Status{
		SentrixID:       "201234_R01C01",
		IdatDirectory:   "/data/idats",
		Method:          MethodNoob,
		BinSize:         50000,
		MinProbesPerBin: 15,
		OutputDirectory: dir,
		ArrayType:       null.StringFrom("450k"),
		Completed:       true,
		ParsingSeconds:  null.FloatFrom(1.25),
		AnalysisSeconds: null.FloatFrom(17.5),
	}

	path := Path(status.SentrixID, dir, "")
	if err := status.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.SentrixID != status.SentrixID || loaded.Method != MethodNoob {
		t.Fatalf("round trip lost identity fields: %+v", loaded)
	}
	if !loaded.Completed {
		t.Fatal("round trip lost completion status")
	}
	if !loaded.ArrayType.Valid || loaded.ArrayType.String != "450k" {
		t.Fatalf("round trip lost array type: %+v", loaded.ArrayType)
	}
	if !loaded.AnalysisSeconds.Valid || loaded.AnalysisSeconds.Float64 != 17.5 {
		t.Fatalf("round trip lost analysis timing: %+v", loaded.AnalysisSeconds)
	}
	if loaded.FailureReason.Valid {
		t.Fatalf("failure reason should be null for a successful run: %+v", loaded.FailureReason)
	}
	if loaded.TimestampUTC == "" {
		t.Fatal("timestamp not set on save")
	}
}

func TestStatusFailureFields(t *testing.T) {
	dir := t.TempDir()

	status := &Status{
		SentrixID:     "201234_R02C01",
		Method:        MethodSwan,
		Completed:     false,
		FailureReason: null.StringFrom("array type \"mouse\" is not supported"),
	}

	path := Path(status.SentrixID, dir, "EPIC_v2_to_MSA48")
	if err := status.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Completed {
		t.Fatal("expected an incomplete run")
	}
	if !loaded.FailureReason.Valid {
		t.Fatal("expected a failure reason")
	}
}
