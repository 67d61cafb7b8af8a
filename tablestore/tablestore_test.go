package tablestore

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/neuropathbasel-pub/cnquant/preprocess"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestParamsRoundTrip(t *testing.T) {
	s := testStore(t)

	params := []preprocess.NormExpParams{
		{Mu: 512.25, LogSigma: math.Log(48.5), LogAlpha: math.Log(1024)},
		{Mu: 333, LogSigma: 2.5, LogAlpha: 7.1},
	}

	if err := s.StoreParams("noob_params_450k", params); err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveParams("noob_params_450k")
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != len(params) {
		t.Fatalf("got %d rows, expected %d", len(got), len(params))
	}
	for i := range params {
		if math.Abs(got[i].Mu-params[i].Mu) > 1e-9 ||
			math.Abs(got[i].LogSigma-params[i].LogSigma) > 1e-9 ||
			math.Abs(got[i].LogAlpha-params[i].LogAlpha) > 1e-9 {
			t.Fatalf("row %d: got %+v, expected %+v", i, got[i], params[i])
		}
	}
}

func TestBetasRoundTrip(t *testing.T) {
	s := testStore(t)

	betas := []BetaRecord{
		{IlmnID: "cg00000029", Beta: 0.75},
		{IlmnID: "cg00000108", Beta: 0.02},
	}

	if err := s.StoreBetas("betas_201234_R01C01", betas); err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveBetas("betas_201234_R01C01")
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 || got[0].IlmnID != "cg00000029" || got[1].Beta != 0.02 {
		t.Fatalf("unexpected round trip result: %+v", got)
	}
}

func TestRetrieveDetectsCorruption(t *testing.T) {
	s := testStore(t)

	if err := s.StoreBetas("corruptme", []BetaRecord{{IlmnID: "cg1", Beta: 0.5}}); err != nil {
		t.Fatal(err)
	}

	// Flip a byte in the stored table body.
	path := filepath.Join(s.dir, "corruptme"+tableSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = s.RetrieveBetas("corruptme")
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestRetrieveMissingChecksumIsDistinct(t *testing.T) {
	s := testStore(t)

	if err := s.StoreBetas("nosidecar", []BetaRecord{{IlmnID: "cg1", Beta: 0.5}}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(s.dir, "nosidecar"+tableSuffix)
	if err := os.Remove(path + checksumSuffix); err != nil {
		t.Fatal(err)
	}

	_, err := s.RetrieveBetas("nosidecar")
	if !errors.Is(err, ErrChecksumMissing) {
		t.Fatalf("expected ErrChecksumMissing, got %v", err)
	}
	if errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("missing sidecar must not look like corruption: %v", err)
	}
}

func TestStoreOverwritesExistingKey(t *testing.T) {
	s := testStore(t)

	if err := s.StoreBetas("key1", []BetaRecord{{IlmnID: "old", Beta: 0.1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreBetas("key1", []BetaRecord{{IlmnID: "new", Beta: 0.9}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveBetas("key1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].IlmnID != "new" {
		t.Fatalf("expected the overwritten table, got %+v", got)
	}
}

func TestRegistryRecordsStores(t *testing.T) {
	s := testStore(t)

	if err := s.StoreBetas("registered", []BetaRecord{{IlmnID: "cg1", Beta: 0.5}}); err != nil {
		t.Fatal(err)
	}

	var row registryRow
	if err := s.db.Get(&row, `SELECT key, path, checksum, created_at FROM tables WHERE key = ?`, "registered"); err != nil {
		t.Fatal(err)
	}

	if row.Key != "registered" || row.Checksum == "" {
		t.Fatalf("unexpected registry row: %+v", row)
	}
}

func TestValidateKey(t *testing.T) {
	s := testStore(t)

	for _, key := range []string{"", "has space", "../escape", "semi;colon"} {
		if err := s.StoreBetas(key, []BetaRecord{{IlmnID: "cg1", Beta: 0.5}}); err == nil {
			t.Fatalf("expected an error for key %q", key)
		}
	}
}
