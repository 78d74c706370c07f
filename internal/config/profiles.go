package config

// Profile carries the per-model defaults of a sweep. Empty fields leave
// the config untouched.
type Profile struct {
	Prompts      []string `yaml:"prompts"`
	Contexts     string   `yaml:"ctx"`
	NumPredict   string   `yaml:"num_predict"`
	Temperatures string   `yaml:"temp"`
	Seeds        *string  `yaml:"seed"`
	Mode         string   `yaml:"mode"`
}

// BuiltinProfiles are the model defaults shipped with the runner.
var BuiltinProfiles = map[string]Profile{
	"llama3.2-vision:11b": {
		Prompts: []string{
			"Describe this image in detail.",
			"What objects can you identify in this image?",
			"Analyze the colors and composition of this image.",
			"Summarize in 5 lines the capabilities of the Llama 3.2 Vision model.",
		},
		Contexts:     "4096",
		NumPredict:   "128,256",
		Temperatures: "0,0.4",
		Seeds:        strPtr("42"),
		Mode:         "both",
	},
	"gpt-oss:20b": {
		Prompts: []string{
			"Explain in detail how machine learning works and its applications in everyday life.",
			"Write a short science fiction story set in the year 2075 that includes emerging technologies.",
			"Analyze the advantages and disadvantages of renewable energy compared to fossil fuels.",
			"Write an essay on the impact of social networks on modern human communication.",
			"Describe the process of photosynthesis in plants and its importance for the global ecosystem.",
		},
		Contexts:     "8192",
		NumPredict:   "256,512",
		Temperatures: "0.3,0.7,1.0",
		Seeds:        strPtr("42"),
		Mode:         "text",
	},
}

// fallbackProfile is used for models without a profile.
var fallbackProfile = Profile{
	Prompts:      []string{"Explain how large language model inference works in three short paragraphs."},
	Contexts:     "4096",
	NumPredict:   "128",
	Temperatures: "0",
	Seeds:        strPtr("42"),
	Mode:         "text",
}

func strPtr(s string) *string { return &s }

// LookupProfile resolves a profile by name: user profiles first, then
// built-ins, then the generic fallback.
func (c *Config) LookupProfile(name string) Profile {
	if p, ok := c.Profiles[name]; ok {
		return p
	}
	if p, ok := BuiltinProfiles[name]; ok {
		return p
	}
	return fallbackProfile
}

// ApplyProfile fills unset axes from the profile named by Profile, or by
// Model when Profile is empty. Prompts are only filled when neither
// prompts nor a prompt file are configured.
func (c *Config) ApplyProfile() {
	name := c.Profile
	if name == "" {
		name = c.Model
	}
	p := c.LookupProfile(name)

	if len(c.Prompts) == 0 && c.PromptFile == "" {
		c.Prompts = append([]string{}, p.Prompts...)
	}
	if c.Contexts == "" {
		c.Contexts = p.Contexts
	}
	if c.NumPredict == "" {
		c.NumPredict = p.NumPredict
	}
	if c.Temperatures == "" {
		c.Temperatures = p.Temperatures
	}
	if c.Seeds == nil && p.Seeds != nil {
		c.Seeds = strPtr(*p.Seeds)
	}
	if c.Mode == "" {
		c.Mode = p.Mode
	}
}
