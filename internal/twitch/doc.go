// SPDX-License-Identifier: MIT

// Package twitch is a minimal Helix API client covering the calls vodsaver
// needs: login resolution, live-stream probing and latest-archive lookup,
// plus credential acquisition (app access tokens and the device code flow).
package twitch
