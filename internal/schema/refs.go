package schema

// FileRefs enumerates every blob reference held by the given field map,
// honoring the schema's file-valued fields (single id or array of ids).
func FileRefs(s *Schema, fields map[string]any) []string {
	if fields == nil {
		return nil
	}
	var refs []string
	for _, f := range s.FileFields() {
		val, ok := fields[f.Name]
		if !ok || val == nil {
			continue
		}
		switch f.Kind {
		case KindFile:
			if id, ok := val.(string); ok && id != "" {
				refs = append(refs, id)
			}
		case KindArray:
			arr, ok := val.([]any)
			if !ok {
				continue
			}
			for _, item := range arr {
				if id, ok := item.(string); ok && id != "" {
					refs = append(refs, id)
				}
			}
		}
	}
	return refs
}

// OrphanedRefs computes before \ after: blob ids referenced by the old
// field values but absent from the new ones. These are the blobs to
// schedule for deletion once the write commits.
func OrphanedRefs(s *Schema, before, after map[string]any) []string {
	oldRefs := FileRefs(s, before)
	if len(oldRefs) == 0 {
		return nil
	}
	live := make(map[string]struct{})
	for _, id := range FileRefs(s, after) {
		live[id] = struct{}{}
	}
	var orphaned []string
	for _, id := range oldRefs {
		if _, ok := live[id]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	return orphaned
}
