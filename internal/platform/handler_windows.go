//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const classesKey = `Software\Classes`

// registerURLSchemes writes the per-user scheme registrations under HKCU.
func registerURLSchemes(exePath string) error {
	command := fmt.Sprintf("%q %%1", exePath)

	for _, scheme := range URLSchemes {
		if err := registerScheme(scheme, exePath, command); err != nil {
			return fmt.Errorf("register %s: %w", scheme, err)
		}
	}

	return nil
}

func registerScheme(scheme, exePath, command string) error {
	base := classesKey + `\` + scheme

	values := []struct {
		path, name, value string
	}{
		{base, "", "URL: Roblox Protocol"},
		{base, "URL Protocol", ""},
		{base + `\DefaultIcon`, "", exePath},
		{base + `\shell\open\command`, "", command},
	}

	for _, v := range values {
		key, _, err := registry.CreateKey(registry.CURRENT_USER, v.path, registry.SET_VALUE)
		if err != nil {
			return err
		}

		err = key.SetStringValue(v.name, v.value)
		_ = key.Close()

		if err != nil {
			return err
		}
	}

	return nil
}

// unregisterURLSchemes deletes the scheme trees; absent keys are ignored.
func unregisterURLSchemes() error {
	for _, scheme := range URLSchemes {
		base := classesKey + `\` + scheme

		// registry.DeleteKey is not recursive, so children go first.
		for _, path := range []string{
			base + `\shell\open\command`,
			base + `\shell\open`,
			base + `\shell`,
			base + `\DefaultIcon`,
			base,
		} {
			err := registry.DeleteKey(registry.CURRENT_USER, path)
			if err != nil && !errors.Is(err, registry.ErrNotExist) {
				return fmt.Errorf("unregister %s: %w", scheme, err)
			}
		}
	}

	return nil
}
