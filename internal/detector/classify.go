package detector

import (
	"path"
	"strings"

	"github.com/driftguard/driftguard/internal/models"
)

// Classify assigns a category tag to a resource based on its path. The
// mapping is deterministic so repeated scans of the same resource always
// land in the same category.
func Classify(resourcePath string) string {
	name := strings.ToLower(path.Base(resourcePath))
	ext := path.Ext(name)

	switch ext {
	case ".sql", ".ddl", ".proto", ".avsc", ".xsd":
		return models.CategorySchema
	case ".json", ".yaml", ".yml", ".toml", ".ini", ".conf", ".env", ".properties":
		return models.CategoryConfiguration
	case ".css", ".scss", ".sass", ".less":
		return models.CategoryStyle
	}
	if strings.HasPrefix(name, ".") || strings.Contains(name, "config") {
		return models.CategoryConfiguration
	}
	return models.CategoryStructural
}
