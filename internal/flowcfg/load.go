package flowcfg

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/fsutil"
)

// Load discovers and parses every .hcl file under the given paths and
// returns the declared pipelines, keyed nowhere yet: order follows file
// discovery order. Pipeline names must be unique across all files.
func Load(ctx context.Context, paths ...string) ([]*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Config loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered config files.", "count", len(files))

	parser := hclparse.NewParser()
	seen := make(map[string]string)
	var pipelines []*Pipeline

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", file, diags)
		}

		for _, block := range root.Pipelines {
			if prev, dup := seen[block.Name]; dup {
				return nil, fmt.Errorf("pipeline %q declared in both %s and %s", block.Name, prev, file)
			}
			seen[block.Name] = file

			p, err := buildPipeline(block)
			if err != nil {
				return nil, fmt.Errorf("pipeline %q in %s: %w", block.Name, file, err)
			}
			pipelines = append(pipelines, p)
		}
	}

	if len(pipelines) == 0 {
		return nil, fmt.Errorf("no pipeline blocks found in %d file(s)", len(files))
	}
	logger.Debug("Config loading complete.", "pipelines", len(pipelines))
	return pipelines, nil
}
