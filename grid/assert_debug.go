//go:build debug

package grid

const debugAssertions = true
