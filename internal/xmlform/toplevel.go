package xmlform

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
)

// TopLevelNames returns the local names of the root element's direct
// children in document order, without repeats. Namespace prefixes are
// dropped and a Meta element is reported as "meta".
func TopLevelNames(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		names []string
		seen  = map[string]bool{}
		depth int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth != 2 {
				continue
			}
			name := t.Name.Local
			if name == "Meta" {
				name = "meta"
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		case xml.EndElement:
			depth--
		}
	}
	if depth != 0 {
		return nil, &ParseError{Err: errors.New("unbalanced elements")}
	}
	return names, nil
}
