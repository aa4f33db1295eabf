// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential-based authentication for holoauth.
//
// # Components
//
//   - CredentialStore - user lookup, password verification, remember-token
//     digests. The only component that handles raw secrets.
//   - Resolver - determines the identity of a request from its session state
//     and remember cookie pair, reporting a session upgrade when a cookie
//     authenticates.
//   - Service - explicit login and logout actions.
//
// Neither Resolver nor Service writes sessions or cookies. They return
// Resolution, LoginResult and LogoutResult values and the HTTP boundary
// applies them.
//
// # Errors
//
// Absence (unknown email, stale user id, bad token) is a normal return
// value. Errors returned from these components are record store failures and
// carry the CodeStoreFailure oops code, or validation failures from
// CreateUser.
package auth
