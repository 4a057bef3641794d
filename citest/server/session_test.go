package server_test

import (
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session lifecycle", func() {
	It("creates a session and returns it from GET /sessions/{id}", func() {
		sess, err := client.CreateSession(ctx, "my session")
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.ID).NotTo(BeEmpty())
		Expect(sess.Title).To(Equal("my session"))
		Expect(sess.Status).To(Equal("idle"))

		resp, err := client.Get(ctx, "/sessions/"+sess.ID)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var got map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
		Expect(got["id"]).To(Equal(sess.ID))
	})

	It("lists a created session among /sessions", func() {
		sess, err := client.CreateSession(ctx, "listed session")
		Expect(err).NotTo(HaveOccurred())
		defer client.DeleteSession(ctx, sess.ID)

		resp, err := client.Get(ctx, "/sessions")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var sessions []map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&sessions)).To(Succeed())

		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s["id"].(string))
		}
		Expect(ids).To(ContainElement(sess.ID))
	})

	It("returns 404 for an unknown session", func() {
		resp, err := client.Get(ctx, "/sessions/does-not-exist")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("404s after DeleteSession", func() {
		sess, err := client.CreateSession(ctx, "to delete")
		Expect(err).NotTo(HaveOccurred())
		Expect(client.DeleteSession(ctx, sess.ID)).To(Succeed())

		resp, err := client.Get(ctx, "/sessions/"+sess.ID)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})

var _ = Describe("Permission mode endpoint", func() {
	It("reports the mode set at startup", func() {
		resp, err := client.Get(ctx, "/permissions/mode")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var got map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
		Expect(got["mode"]).To(Equal("allow"))
	})
})
