package strategy

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// decodeParams vuelca p sobre into, que ya viene con los defaults cargados.
// Las claves que la estrategia no conoce son un error, salvo las que consume
// el engine (exclusive, signal_floor, consensus_min).
func decodeParams(p Params, into any) error {
	if len(p) == 0 {
		return nil
	}
	clean := make(map[string]any, len(p))
	for k, v := range p {
		switch k {
		case "exclusive", "signal_floor", "consensus_min":
			continue
		}
		clean[k] = v
	}
	raw, err := yaml.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
