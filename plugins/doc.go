// Package plugins hosts analysis plugin subpackages. It contains no runtime
// code itself; the architecture test alongside it keeps plugin production
// code on the public pkg/ surface.
//
// Plugins build against pkg/pluginapi and pkg/domain only. Tests may import
// internal/core to drive a real session.
package plugins
