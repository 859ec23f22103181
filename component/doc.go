// Package component maps the type names used in pipeline files to the
// factories that build stages.
//
// Each component package exposes a Register function that adds its
// types to a Registry; the componentregistry package registers them all:
//
//	registry := component.NewRegistry()
//	if err := componentregistry.Register(registry); err != nil {
//	    return err
//	}
//	src, err := registry.CreateSource("udp", "udp_in", opts, deps)
//
// Factories decode their own Options with Options.Decode, which rejects
// unknown keys and runs the config's Validate method.
package component
