package schema

import "github.com/artpar/modreg/core/errs"

// MapSource serves schema text from memory. Keys are "name" or
// "name@revision"; a revisioned key wins when the revision is requested.
type MapSource map[string][]byte

// Find implements Source.
func (s MapSource) Find(name, revision string) ([]byte, error) {
	if revision != "" {
		if text, ok := s[name+"@"+revision]; ok {
			return text, nil
		}
	}
	if text, ok := s[name]; ok {
		return text, nil
	}
	return nil, errs.New(errs.NotFound, "schema of module %q not found", name)
}
