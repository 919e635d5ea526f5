package release

import (
	"maps"
	"slices"
)

// PathMappingTable maps package file names to extraction-root prefixes.
// The zero value maps every package to the archive root.
type PathMappingTable struct {
	prefixes map[string]string
}

// NewPathMappingTable copies prefixes into an immutable table.
func NewPathMappingTable(prefixes map[string]string) PathMappingTable {
	return PathMappingTable{prefixes: maps.Clone(prefixes)}
}

// Prefix returns the extraction root for a package. Unknown packages map to "".
func (t PathMappingTable) Prefix(packageName string) string {
	return t.prefixes[packageName]
}

// Packages returns the mapped package names in lexical order.
func (t PathMappingTable) Packages() []string {
	var names []string
	for name := range t.prefixes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of mapped packages.
func (t PathMappingTable) Len() int {
	return len(t.prefixes)
}

// Mappings holds one table per variant.
type Mappings struct {
	Player PathMappingTable
	Studio PathMappingTable
}

// For returns the table of the given variant.
func (m Mappings) For(v Variant) PathMappingTable {
	if v == Player {
		return m.Player
	}

	return m.Studio
}

// DefaultMappings returns the extraction roots used by the official bootstrapper.
func DefaultMappings() Mappings {
	return Mappings{
		Player: NewPathMappingTable(map[string]string{
			"RobloxApp.zip":                     "",
			"redist.zip":                        "",
			"shaders.zip":                       "shaders/",
			"ssl.zip":                           "ssl/",
			"WebView2.zip":                      "",
			"WebView2RuntimeInstaller.zip":      "WebView2RuntimeInstaller/",
			"content-avatar.zip":                "content/avatar/",
			"content-configs.zip":               "content/configs/",
			"content-fonts.zip":                 "content/fonts/",
			"content-sky.zip":                   "content/sky/",
			"content-sounds.zip":                "content/sounds/",
			"content-textures2.zip":             "content/textures/",
			"content-models.zip":                "content/models/",
			"content-platform-fonts.zip":        "PlatformContent/pc/fonts/",
			"content-platform-dictionaries.zip": "PlatformContent/pc/shared_compression_dictionaries/",
			"content-terrain.zip":               "PlatformContent/pc/terrain/",
			"content-textures3.zip":             "PlatformContent/pc/textures/",
			"extracontent-luapackages.zip":      "ExtraContent/LuaPackages/",
			"extracontent-translations.zip":     "ExtraContent/translations/",
			"extracontent-models.zip":           "ExtraContent/models/",
			"extracontent-textures.zip":         "ExtraContent/textures/",
			"extracontent-places.zip":           "ExtraContent/places/",
		}),
		Studio: NewPathMappingTable(map[string]string{
			"RobloxStudio.zip":                  "",
			"RibbonConfig.zip":                  "RibbonConfig/",
			"redist.zip":                        "",
			"Libraries.zip":                     "",
			"LibrariesQt5.zip":                  "",
			"WebView2.zip":                      "",
			"WebView2RuntimeInstaller.zip":      "",
			"shaders.zip":                       "shaders/",
			"ssl.zip":                           "ssl/",
			"Qml.zip":                           "Qml/",
			"Plugins.zip":                       "Plugins/",
			"StudioFonts.zip":                   "StudioFonts/",
			"BuiltInPlugins.zip":                "BuiltInPlugins/",
			"ApplicationConfig.zip":             "ApplicationConfig/",
			"BuiltInStandalonePlugins.zip":      "BuiltInStandalonePlugins/",
			"content-qt_translations.zip":       "content/qt_translations/",
			"content-sky.zip":                   "content/sky/",
			"content-fonts.zip":                 "content/fonts/",
			"content-avatar.zip":                "content/avatar/",
			"content-models.zip":                "content/models/",
			"content-sounds.zip":                "content/sounds/",
			"content-configs.zip":               "content/configs/",
			"content-api-docs.zip":              "content/api_docs/",
			"content-textures2.zip":             "content/textures/",
			"content-studio_svg_textures.zip":   "content/studio_svg_textures/",
			"content-platform-fonts.zip":        "PlatformContent/pc/fonts/",
			"content-platform-dictionaries.zip": "PlatformContent/pc/shared_compression_dictionaries/",
			"content-terrain.zip":               "PlatformContent/pc/terrain/",
			"content-textures3.zip":             "PlatformContent/pc/textures/",
			"extracontent-translations.zip":     "ExtraContent/translations/",
			"extracontent-luapackages.zip":      "ExtraContent/LuaPackages/",
			"extracontent-textures.zip":         "ExtraContent/textures/",
			"extracontent-scripts.zip":          "ExtraContent/scripts/",
			"extracontent-models.zip":           "ExtraContent/models/",
			"studiocontent-models.zip":          "StudioContent/models/",
			"studiocontent-textures.zip":        "StudioContent/textures/",
		}),
	}
}
