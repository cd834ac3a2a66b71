package app_test

import (
	"encoding/json"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/sclevine/spec"

	pkgapp "github.com/buildpack/push2docker/app"
)

func TestApp(t *testing.T) {
	spec.Run(t, "#Stage", testStage)
	spec.Run(t, "#Launch", testLaunch)
}

func testStage(t *testing.T, when spec.G, it spec.S) {
	Expect := NewWithT(t).Expect

	var (
		app *pkgapp.App
		set func(k, v string)
	)

	it.Before(func() {
		var err error
		app, err = pkgapp.New("some-app", "some-stack")
		Expect(err).NotTo(HaveOccurred())
		app.Mem = 512
		app.Env, set = env()
	})

	it("should return the default staging env", func() {
		env := toMap(app.Stage("/some/home"))
		Expect(env).To(HaveLen(9))
		Expect(env).To(HaveKeyWithValue("HOME", "/some/home"))
		Expect(env).To(HaveKeyWithValue("TMPDIR", "/some/home/tmp"))
		Expect(env).To(HaveKeyWithValue("PATH", "/usr/local/bin:/usr/bin:/bin"))
		Expect(env).To(HaveKeyWithValue("LANG", "en_US.UTF-8"))
		Expect(env).To(HaveKeyWithValue("USER", "vcap"))
		Expect(env).To(HaveKeyWithValue("CF_STACK", "some-stack"))
		Expect(env).To(HaveKeyWithValue("MEMORY_LIMIT", "512m"))
		Expect(env).To(HaveKeyWithValue("VCAP_SERVICES", "{}"))

		vcapApp := map[string]interface{}{}
		Expect(json.Unmarshal([]byte(env["VCAP_APPLICATION"]), &vcapApp)).To(Succeed())
		Expect(vcapApp).To(HaveKeyWithValue("name", "some-app"))
		Expect(vcapApp).To(HaveKeyWithValue("application_name", "some-app"))
		Expect(vcapApp).To(HaveKeyWithValue("uris", []interface{}{"some-app.local"}))
		Expect(vcapApp).NotTo(HaveKey("port"))
	})

	it("does not leak the host environment", func() {
		set("SOME_HOST_VAR", "some-value")
		Expect(toMap(app.Stage("/some/home"))).NotTo(HaveKey("SOME_HOST_VAR"))
	})

	when("custom env variables are set", func() {
		it("should return a custom staging env", func() {
			set("PACK_APP_NAME", "some-name")
			set("PACK_APP_MEM", "30")
			set("CF_STACK", "other-stack")

			env := toMap(app.Stage("/some/home"))
			Expect(env).To(HaveKeyWithValue("MEMORY_LIMIT", "30m"))
			Expect(env).To(HaveKeyWithValue("CF_STACK", "other-stack"))
			Expect(env["VCAP_APPLICATION"]).To(ContainSubstring(`"application_name":"some-name"`))
			Expect(env["VCAP_APPLICATION"]).To(ContainSubstring(`"uris":["some-name.local"]`))
		})
	})
}

func testLaunch(t *testing.T, when spec.G, it spec.S) {
	Expect := NewWithT(t).Expect

	var app *pkgapp.App

	it.Before(func() {
		var err error
		app, err = pkgapp.New("some-app", "some-stack")
		Expect(err).NotTo(HaveOccurred())
		app.Env, _ = env()
	})

	it("should return the default launch env in a stable order", func() {
		launch := app.Launch()
		Expect(launch).To(HaveLen(6))
		Expect(launch[0]).To(Equal("HOME=/home/vcap/app"))
		Expect(launch).To(Equal(app.Launch()))

		env := toMap(launch)
		Expect(env).To(HaveKeyWithValue("PORT", "8080"))
		Expect(env).To(HaveKeyWithValue("VCAP_APP_PORT", "8080"))
		Expect(env).To(HaveKeyWithValue("VCAP_APP_HOST", "0.0.0.0"))
		Expect(env).To(HaveKeyWithValue("TMPDIR", "/home/vcap/tmp"))

		vcapApp := map[string]interface{}{}
		Expect(json.Unmarshal([]byte(env["VCAP_APPLICATION"]), &vcapApp)).To(Succeed())
		Expect(vcapApp).To(HaveKeyWithValue("host", "0.0.0.0"))
		Expect(vcapApp).To(HaveKeyWithValue("port", float64(8080)))
		Expect(vcapApp).To(HaveKeyWithValue("instance_index", float64(0)))
		Expect(vcapApp).To(HaveKeyWithValue("application_id", "0"))
		Expect(vcapApp).To(HaveKeyWithValue("name", "some-app"))
	})
}

func toMap(env []string) map[string]string {
	m := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	return m
}

func env() (env func(string) (string, bool), set func(k, v string)) {
	m := map[string]string{}
	return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}, func(k, v string) {
			m[k] = v
		}
}
