package scenario

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"dronenav/internal/model"
)

func WriteYAML(w io.Writer, sc model.Scenario) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sc); err != nil {
		return err
	}
	return enc.Close()
}

func ReadYAML(r io.Reader) (model.Scenario, error) {
	var sc model.Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return model.Scenario{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := sc.Validate(); err != nil {
		return model.Scenario{}, err
	}
	sc.Reset()
	return sc, nil
}
