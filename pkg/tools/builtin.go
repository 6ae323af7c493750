// Package tools holds the gateway's built-in tool.action catalog: a JSON
// Schema plus a capability manifest for every action a sandbox worker is
// expected to expose out of the box.
//
// Grounded on the reference's mcp.ToolCatalog.RegisterCommonTools stub
// (core/pkg/mcp/catalog.go), which the reference left as a TODO; this fills
// it in against spec.md §4.1's risk-family table and its own seed test
// scenarios (§8) instead of the reference's tool names.
package tools

import "github.com/lattice-run/agentgw/pkg/schema"

type definition struct {
	toolAction string
	schemaJSON string
	manifest   schema.Manifest
}

// RegisterBuiltins loads the gateway's default tool.action catalog into reg.
// cmd/gateway calls this once at startup, before the first request; operators
// extend the catalog by calling reg.Register directly for additional tools.
func RegisterBuiltins(reg *schema.Registry) error {
	for _, d := range builtins {
		if err := reg.Register(d.toolAction, []byte(d.schemaJSON), d.manifest); err != nil {
			return err
		}
	}
	return nil
}

// RequiredCapabilities returns the deduplicated set of capability names the
// built-in catalog declares across every manifest. cmd/gateway seeds the
// capability gate's allowed set with this list when the operator leaves
// GATEWAY_ALLOWED_CAPABILITIES unset, so a freshly started gateway can
// actually reach risk scoring/approval routing for its own default tools
// instead of failing every call at the capability gate.
func RequiredCapabilities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range builtins {
		for _, c := range d.manifest.RequiredCapabilities {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

var builtins = []definition{
	{
		toolAction: "noop.ping",
		schemaJSON: `{"type":"object","additionalProperties":false}`,
		manifest:   schema.Manifest{RiskLevel: "low"},
	},
	{
		toolAction: "file.read",
		schemaJSON: `{
			"type":"object",
			"properties":{"path":{"type":"string","minLength":1}},
			"required":["path"],
			"additionalProperties":false
		}`,
		manifest: schema.Manifest{
			RequiredCapabilities: []string{"fs.read"},
			AllowedArgKeys:       []string{"path"},
			RiskLevel:            "med",
		},
	},
	{
		toolAction: "file.write",
		schemaJSON: `{
			"type":"object",
			"properties":{
				"path":{"type":"string","minLength":1},
				"content":{"type":"string"}
			},
			"required":["path","content"],
			"additionalProperties":false
		}`,
		manifest: schema.Manifest{
			RequiredCapabilities: []string{"fs.write"},
			AllowedArgKeys:       []string{"path", "content"},
			RiskLevel:            "med",
		},
	},
	{
		toolAction: "shell.exec",
		schemaJSON: `{
			"type":"object",
			"properties":{
				"cmd":{"type":"string","minLength":1},
				"timeout_seconds":{"type":"integer","minimum":1,"maximum":120}
			},
			"required":["cmd"],
			"additionalProperties":false
		}`,
		manifest: schema.Manifest{
			RequiredCapabilities: []string{"shell.exec"},
			AllowedArgKeys:       []string{"cmd", "timeout_seconds"},
			RiskLevel:            "high",
			RequiresApproval:     true,
		},
	},
	{
		toolAction: "network.request",
		schemaJSON: `{
			"type":"object",
			"properties":{
				"url":{"type":"string","minLength":1},
				"method":{"type":"string","enum":["GET","POST","PUT","DELETE","PATCH"]}
			},
			"required":["url"],
			"additionalProperties":false
		}`,
		manifest: schema.Manifest{
			RequiredCapabilities: []string{"net.request"},
			AllowedArgKeys:       []string{"url", "method", "body", "headers"},
			RiskLevel:            "med",
		},
	},
	{
		toolAction: "db.query",
		schemaJSON: `{
			"type":"object",
			"properties":{"sql":{"type":"string","minLength":1}},
			"required":["sql"],
			"additionalProperties":false
		}`,
		manifest: schema.Manifest{
			RequiredCapabilities: []string{"db.query"},
			AllowedArgKeys:       []string{"sql"},
			RiskLevel:            "med",
		},
	},
}
