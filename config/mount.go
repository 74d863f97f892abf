package config

import (
	"github.com/pkg/errors"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/metadata"
)

var topicNames = map[string]log.Topics{
	"call":    log.TopicCall,
	"verdict": log.TopicVerdict,
	"trace":   log.TopicTrace,
	"error":   log.TopicError,
}

// TopicMask combines the configured topics.
func (c LoggingConfig) TopicMask() log.Topics {
	var topics log.Topics
	for _, name := range c.Topics {
		topics |= topicNames[name]
	}
	return topics
}

// MountOptions converts the section into mount options.
func (c MountConfig) MountOptions() ([]dokan.Option, error) {
	flags, err := dokan.ParseMountFlags(c.Flags)
	if err != nil {
		return nil, errors.Wrap(err, "mount.flags")
	}
	return []dokan.Option{
		dokan.VolumeLabel(c.VolumeLabel),
		dokan.FileSystemName(c.FileSystemName),
		dokan.SerialNumber(c.SerialNumber),
		dokan.ReadOnly(c.ReadOnly),
		dokan.CaseSensitive(c.CaseSensitive),
		dokan.ThreadCount(c.Threads),
		dokan.Timeout(c.Timeout),
		dokan.Flags(flags),
	}, nil
}

// ReadOnlyMode parses ReadOnlyAttribute.
func (c MountConfig) ReadOnlyMode() (metadata.ReadOnlyMode, error) {
	mode, err := metadata.ParseReadOnlyMode(c.ReadOnlyAttribute)
	return mode, errors.Wrap(err, "mount.readonly_attribute")
}
