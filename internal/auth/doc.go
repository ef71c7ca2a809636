// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth drives the sign-in flow: it consults the AttemptGuard, calls
// the remote authenticator, installs the session, confirms the profile, and
// records the outcome.
//
// # Usage
//
//	svc := auth.NewService(guard, sessions, api, api, auth.WithNotifier(toasts))
//	sess, err := svc.SignIn(ctx, auth.Credentials{Email: email, Password: pw})
//	var locked *auth.LockedOutError
//	if errors.As(err, &locked) {
//	    fmt.Println("retry in", locked.RetryAfter)
//	}
package auth
