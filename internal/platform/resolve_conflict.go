//go:build (native && edge) || (web && native) || (web && edge)

package platform

// Only one of the web, native and edge tags may be set. This file is the only
// one selected in that case and names the problem in the compile error.
var _ = missingPlatformImplementation_tagsWebNativeEdgeAreMutuallyExclusive
