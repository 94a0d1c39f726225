// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package nats

// Config holds the connection settings for the optional cross-instance
// PUBLISH fan-out (SPEC_FULL.md §4): when Address is set, memnoded
// publishes every local PUBLISH to a "memnode.<channel>" subject and
// subscribes to "memnode.>" so sibling processes' PUBLISHes reach this
// instance's local subscribers too.
type Config struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
}
