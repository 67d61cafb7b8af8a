package arraytype

import (
	"fmt"
	"os"

	"github.com/carbocation/pfx"
	"github.com/neuropathbasel-pub/cnquant/idat"
)

// FromIdat infers the array design from an IDAT file by reading only its
// header probe count. The path may be a full filename or a sample basename;
// basenames are resolved against the green-channel file, gzipped or not.
func FromIdat(path string) (ArrayType, error) {
	resolved, err := ResolveIdatPath(path)
	if err != nil {
		return Unknown, err
	}

	count, err := idat.ProbeCount(resolved)
	if err != nil {
		return Unknown, err
	}

	return FromProbeCount(count), nil
}

// ResolveIdatPath locates the IDAT file belonging to path. If path itself
// does not exist, the green-channel suffixes are tried in turn, mirroring
// how samples are usually referenced by their Sentrix basename.
func ResolveIdatPath(path string) (string, error) {
	candidates := []string{
		path,
		path + "_Grn.idat",
		path + "_Grn.idat.gz",
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", pfx.Err(fmt.Errorf("no valid IDAT file found for path: %s", path))
}
