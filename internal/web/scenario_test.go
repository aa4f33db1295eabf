// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/web"
)

var _ = Describe("Logging in and out", func() {
	var (
		e       *env
		beatrix *auth.User
		b       *browser
	)

	BeforeEach(func() {
		e = newEnv(GinkgoT())
		beatrix = e.createBeatrix(GinkgoT())
		b = e.browser()
	})

	storedDigest := func() *string {
		u, err := e.users.GetByID(context.Background(), beatrix.ID)
		Expect(err).NotTo(HaveOccurred())
		return u.RememberDigest
	}

	Context("with invalid information", func() {
		It("rejects the login and leaves the visitor anonymous", func() {
			rec := b.loginJSON("test@example.com", "invalid", false)

			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(rec.Body.String()).To(ContainSubstring("invalid email or password"))
			Expect(b.jar).To(BeEmpty())
			Expect(b.get("/me").Code).To(Equal(http.StatusUnauthorized))
			Expect(storedDigest()).To(BeNil())
		})
	})

	Context("with valid information", func() {
		It("signs in, then signs out", func() {
			Expect(b.loginJSON("test@example.com", "password123", false).Code).To(Equal(http.StatusOK))
			Expect(b.get("/me").Code).To(Equal(http.StatusOK))
			Expect(b.jar).NotTo(HaveKey(web.RememberTokenCookie))

			Expect(b.logout(http.MethodDelete).Code).To(Equal(http.StatusOK))
			Expect(b.get("/me").Code).To(Equal(http.StatusUnauthorized))

			By("logging out again from the same browser")
			Expect(b.logout(http.MethodDelete).Code).To(Equal(http.StatusOK))
		})
	})

	Context("with remember me", func() {
		BeforeEach(func() {
			Expect(b.loginJSON("test@example.com", "password123", true).Code).To(Equal(http.StatusOK))
		})

		It("stores a digest rather than the raw token", func() {
			digest := storedDigest()
			Expect(digest).NotTo(BeNil())
			Expect(*digest).NotTo(Equal(b.cookie(web.RememberTokenCookie)))
		})

		It("signs the user back in after the browser session ends", func() {
			returning := b.copyCookies(web.RememberUserIDCookie, web.RememberTokenCookie)

			rec := returning.get("/me")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(beatrix.ID.String()))
			Expect(returning.cookie(web.SessionCookie)).NotTo(BeEmpty())
		})

		It("keeps the remember cookies after a wrong password", func() {
			token := b.cookie(web.RememberTokenCookie)

			Expect(b.loginJSON("test@example.com", "invalid", true).Code).To(Equal(http.StatusUnprocessableEntity))

			Expect(b.cookie(web.RememberTokenCookie)).To(Equal(token))
			Expect(storedDigest()).NotTo(BeNil())
		})

		It("forgets the user when they log in again without remember me", func() {
			Expect(b.loginJSON("test@example.com", "password123", false).Code).To(Equal(http.StatusOK))

			Expect(b.jar).NotTo(HaveKey(web.RememberTokenCookie))
			Expect(storedDigest()).To(BeNil())
		})

		It("invalidates the remember cookies on logout", func() {
			stolen := b.copyCookies(web.RememberUserIDCookie, web.RememberTokenCookie)

			Expect(b.logout(http.MethodPost).Code).To(Equal(http.StatusOK))

			Expect(storedDigest()).To(BeNil())
			Expect(stolen.get("/me").Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
