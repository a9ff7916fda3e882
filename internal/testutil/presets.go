package testutil

// WithStandardPlugins adds three plugins that disagree on shared manifest
// keys. Discovered in directory order (alpha, beta, gamma), alpha must win
// every conflict it takes part in.
func (b *Builder) WithStandardPlugins() *Builder {
	return b.
		WithPlugin("alpha",
			Description("first plugin"), Version("1.0.0"),
			Field("port", 8080),
			Field("services", map[string]any{"web": "nginx"}),
			Registry("app.greeter", map[string]any{
				"factory":  "test.greeter",
				"defaults": map[string]any{"greeting": "hello"},
			}),
			Hooks("hooks", "app:start", "record"),
		).
		WithPlugin("beta",
			Description("second plugin"), Version("2.0.0"),
			Field("port", 9090),
			Field("services", map[string]any{"web": "apache", "db": "mysql"}),
			Registry("app.greeter", "test.other"),
			Registry("app.counter", "test.counter"),
			Hooks("hooks", "app:start", map[string]any{"handler": "record", "priority": 5}),
		).
		WithPlugin("gamma",
			Hidden(),
			Field("services", map[string]any{"cache": "redis"}),
		)
}
