/*
Package glm fits generalized linear models for binary outcomes.

The outcome must be coded 0/1.  The model supports the logit, probit,
complementary log-log, log and identity links, an optional offset and
an optional L2 penalty on the coefficients.  Fitting uses iteratively
reweighted least squares by default, or gradient-based optimization.

The data are provided as a hierdata.Data value:

	data, err := hierdata.NewFromFlat(cols, names)
	model := glm.NewGLM(data, "y").Covariates("icept", "x").Done()
	result, err := model.Fit()
	fmt.Println(result.Summary())

Besides the usual log-likelihood, score and Hessian, a GLM reports the
likelihood of a single observation and its derivatives (ObsLike),
which is what the copula models in package fgm are built from.
*/
package glm
