// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"cmskit/internal/cms"
)

// LoadPolicy reads the slug, locale and post type allow-lists from a YAML
// file. Keys missing from the file keep their default. An empty path
// returns the default policy.
func LoadPolicy(path string) (cms.Policy, error) {
	policy := cms.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read policy file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return policy, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if len(policy.PostTypes) == 0 {
		return policy, fmt.Errorf("policy file %s: post_types must not be empty", path)
	}
	return policy, nil
}
