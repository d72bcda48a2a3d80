// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry collects portalctl metrics with the Prometheus client.
//
// portalctl is short-lived, so nothing is served over HTTP. On exit the
// registry is written in text exposition format to telemetry.metrics_file,
// where the node_exporter textfile collector can pick it up.
package telemetry
