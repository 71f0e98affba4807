package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"product-scanner/pkg/storage/consts"
)

func MkdirAll(dirs ...string) error {
	for _, d := range dirs {
		err := os.MkdirAll(d, consts.DefaultDirPerm)
		if err != nil {
			return err
		}
	}

	return nil
}

// CheckName rejects names that would leave their directory.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("invalid file name %q", name)
	}

	return nil
}

// CleanName reduces a client supplied file name to something CheckName accepts.
func CleanName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == ':':
			return '_'
		}
		return r
	}, name)
	if CheckName(name) != nil {
		return fallback
	}

	return name
}
