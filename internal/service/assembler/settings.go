package assembler

import (
	"archive/zip"
	"fmt"
)

// SettingsEntryName is the first entry of every assembled archive.
const SettingsEntryName = "AppSettings.xml"

// SettingsContent points the client at its content folder.
const SettingsContent = `<?xml version="1.0" encoding="UTF-8"?>
<Settings>
    <ContentFolder>content</ContentFolder>
    <BaseUrl>http://www.roblox.com</BaseUrl>
</Settings>
`

// dosEpochDate is 1980-01-01 in MS-DOS date encoding.
const dosEpochDate = 1<<5 | 1

// writeSettings stores AppSettings.xml with a fixed date so that archives are reproducible.
func writeSettings(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:         SettingsEntryName,
		Method:       zip.Store,
		ModifiedDate: dosEpochDate,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", SettingsEntryName, err)
	}

	if _, err = w.Write([]byte(SettingsContent)); err != nil {
		return fmt.Errorf("write %s: %w", SettingsEntryName, err)
	}

	return nil
}
