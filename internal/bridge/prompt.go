// ABOUTME: Builds the system prompt addendum that lists available tools and resources
// ABOUTME: Output is deterministic for a given input order

package bridge

import "strings"

const (
	addendumIntro = "\n\nYou have access to the following tools and resources through a Model Context Protocol (MCP) interface. " +
		"Use the function calling capability to interact with these tools; DO NOT suggest or describe function calls in your text response.\n\n"
	addendumDirective = "Important: Always use the function calling capability of the API, not text-based suggestions. " +
		"DO NOT write code blocks with JSON in your response."
)

// SystemPromptAddendum renders tool and resource descriptors as text for the
// model's instructions. Empty sections are left out. Tool names are shown in
// their function form so they match the declared functions.
func SystemPromptAddendum(tools []Tool, resources []Resource) string {
	var b strings.Builder
	b.WriteString(addendumIntro)

	if len(tools) > 0 {
		b.WriteString("## Available Tools\n\n")
		for _, t := range tools {
			writeEntry(&b, FunctionName(t.Name), t.Description)
		}
		b.WriteString("\n")
	}

	if len(resources) > 0 {
		b.WriteString("## Available Resources\n\n")
		for _, r := range resources {
			writeEntry(&b, r.Name, r.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString(addendumDirective)
	return b.String()
}

func writeEntry(b *strings.Builder, name, desc string) {
	if desc == "" {
		desc = DefaultDescription
	}
	b.WriteString("* **")
	b.WriteString(name)
	b.WriteString("**: ")
	b.WriteString(desc)
	b.WriteString("\n")
}
