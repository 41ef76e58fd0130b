package kernels

// RegisterFeatureKernels registers the feature extraction kernels in their
// selection order. Order matters: the zero-copy single-feature lookup and
// the vector-unrolled lookup are offered before the scalar fallback.
func RegisterFeatureKernels(lib *Library) {
	lib.Register(EmbeddingInitializer{})
	lib.Register(FeatureLookupSingle{})
	lib.Register(FeatureLookupUnrolled{})
	lib.Register(FeatureLookup{})
	lib.Register(FeatureCollect{})
	lib.Register(FeatureConcat{})
	lib.Register(NoOpReshape{})
	lib.RegisterTyper(InitializerTyper{})
}
