// Package processor binds the topic processors to the consumer registry
package processor

import (
	"github.com/CRISalid-esr/crisalid-ikg/consumer"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/processor/people"
	"github.com/CRISalid-esr/crisalid-ikg/processor/references"
	"github.com/CRISalid-esr/crisalid-ikg/processor/structures"
)

// Register registers the people, structures and publications processors
func Register(registry *consumer.Registry) error {
	if registry == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "processor", "Register", "registry validation")
	}

	if err := people.Register(registry); err != nil {
		return errors.WrapInvalid(err, "processor", "Register", "people processor registration")
	}
	if err := structures.Register(registry); err != nil {
		return errors.WrapInvalid(err, "processor", "Register", "structures processor registration")
	}
	if err := references.Register(registry); err != nil {
		return errors.WrapInvalid(err, "processor", "Register", "references processor registration")
	}
	return nil
}
