package sidecar

import "path/filepath"

// resolveDestFolder implements §4.3: a resource's effective destination folder is its
// FolderAnnotation value, interpreted as absolute if it starts with the OS path separator and
// otherwise joined onto the global folder; absent the annotation, the global folder applies.
func resolveDestFolder(cfg *Config, s *Snapshot) string {
	if s.Annotations != nil {
		if v, ok := s.Annotations[cfg.FolderAnnotation]; ok && v != "" {
			if filepath.IsAbs(v) {
				return v
			}
			return filepath.Join(cfg.Folder, v)
		}
	}
	return cfg.Folder
}
