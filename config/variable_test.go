package config_test

import (
	"os"
	"path/filepath"

	"mobilepilot/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Variable", func() {

	Describe("parsing", func() {
		It("parses a variable with a default value", func() {
			_, f := writeFixture("vars.hcl", `variable "app_name" { default = "mobilepilot" }`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Variables[0].Name).To(Equal("app_name"))
			Expect(cfg.Variables[0].Default).To(Equal("mobilepilot"))
			Expect(cfg.Variables[0].Secret).To(BeFalse())
		})

		It("parses a secret variable without a default", func() {
			_, f := writeFixture("vars.hcl", `variable "api_key" { secret = true }`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Variables[0].Secret).To(BeTrue())
			Expect(cfg.Variables[0].Default).To(BeEmpty())
		})

		It("parses a variable with no attributes", func() {
			_, f := writeFixture("vars.hcl", `variable "bare" {}`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables[0].Name).To(Equal("bare"))
			Expect(cfg.Variables[0].Default).To(BeEmpty())
			Expect(cfg.Variables[0].Secret).To(BeFalse())
		})

		It("parses multiple variables", func() {
			hcl := `
variable "a" { default = "alpha" }
variable "b" { default = "beta" }
variable "c" { secret = true }
`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(3))
		})
	})

	Describe("Validate", func() {
		It("rejects secret variable with a default value", func() {
			hcl := `
variable "bad_secret" {
  secret  = true
  default = "oops"
}
`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			err = cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("bad_secret"))
			Expect(err.Error()).To(ContainSubstring("secret"))
		})

		It("accepts non-secret variable with a default", func() {
			hcl := `variable "ok_var" { default = "hello" }`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Validate()).To(Succeed())
		})

		It("accepts secret variable without a default", func() {
			hcl := `variable "good_secret" { secret = true }`
			_, f := writeFixture("vars.hcl", hcl)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Validate()).To(Succeed())
		})
	})
})

var _ = Describe("vars file", func() {
	It("round-trips values under the home directory", func() {
		Expect(config.SetVar("b_key", "two")).To(Succeed())
		Expect(config.SetVar("a_key", "one=1")).To(Succeed())

		v, err := config.GetVar("a_key")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("one=1"))

		names, err := config.ListVars()
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(Equal([]string{"a_key", "b_key"}))

		Expect(config.DeleteVar("b_key")).To(Succeed())
		_, err = config.GetVar("b_key")
		Expect(err).To(MatchError(ContainSubstring("not found")))
	})

	It("prefers the vars file over the default", func() {
		Expect(config.SetVar("api_key", "from-file")).To(Succeed())
		_, f := writeFixture("config.hcl", `
variable "api_key" { default = "from-default" }
model "local" { api_key = vars.api_key }
`)
		cfg, err := config.LoadFile(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Models[0].APIKey).To(Equal("from-file"))
	})

	It("lets MOBILEPILOT_VAR_ environment variables win", func() {
		Expect(config.SetVar("api_key", "from-file")).To(Succeed())
		GinkgoT().Setenv(config.VarEnvPrefix+"API_KEY", "from-env")
		_, f := writeFixture("config.hcl", `
variable "api_key" { default = "from-default" }
model "local" { api_key = vars.api_key }
`)
		cfg, err := config.LoadFile(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Models[0].APIKey).To(Equal("from-env"))

		v := config.Variable{Name: "api_key"}
		Expect(config.ResolveVariableValue(&v)).To(Equal("from-env"))
	})

	It("honours MOBILEPILOT_VARS_FILE and keeps the file private", func() {
		path := filepath.Join(GinkgoT().TempDir(), "nested", "vars.env")
		GinkgoT().Setenv(config.VarsFileEnv, path)

		Expect(config.SetVar("region", "eu west")).To(Succeed())
		info, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

		vars, err := config.LoadVarsFromFile()
		Expect(err).NotTo(HaveOccurred())
		Expect(vars).To(Equal(map[string]string{"region": "eu west"}))
	})
})

var _ = Describe("IsSecretName", func() {
	DescribeTable("classifies variable names",
		func(name string, secret bool) {
			Expect(config.IsSecretName(name)).To(Equal(secret))
		},
		Entry("api key", "openai_api_key", true),
		Entry("token", "sink_token", true),
		Entry("upper case", "DB_PASSWORD", true),
		Entry("dsn", "postgres_dsn", true),
		Entry("plain", "device_url", false),
	)

	It("treats declared secrets as sensitive whatever their name", func() {
		v := config.Variable{Name: "region", Secret: true}
		Expect(v.Sensitive()).To(BeTrue())
		Expect((&config.Variable{Name: "region"}).Sensitive()).To(BeFalse())
	})
})
