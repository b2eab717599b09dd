/*
Package operations runs deployment and administration work as a plan of ordered steps, then
checks the resulting on-chain state.

# Steps and plans

A Step has a Definition (id, semver version, description), an Action and a required flag. A
Plan fixes the order of its steps when it is built:

	plan, err := operations.NewPlan("evm-deploy",
		operations.NewStep("deploy-admin", semver.MustParse("1.0.0"), "Deploy Admin proxy", deployAdmin),
		operations.NewStep("verify-admin", semver.MustParse("1.0.0"), "Verify Admin source", verifyAdmin,
			operations.Optional()),
	)

An Action either submits a transaction and returns Submitted(handle), or reads state and returns
Queried(value). Values for later steps are stored in the run Context from the outcome's Then
hook, which only runs once the transaction is final:

	return operations.Submitted(h).Then(func(rc *operations.Context, v any) error {
		rc.Set("admin.proxy", v)
		return nil
	}), nil

# Running

Run executes the steps one at a time and blocks on every handle until it is final. Each executed
step produces a StepResult which is stored in the Context and sent to the bundle's Reporter. A
failed required step aborts the run, a failed optional step does not:

	report, err := operations.Run(bundle, plan, operations.NewContext(nil),
		operations.WithStepTimeout(5*time.Minute))

Retries are off unless WithRetry is given.

# Verification

Verify compares an ExpectedState with live Queries and records a PropertyCheck per property. It
does not fail: mismatches and query errors end up in the VerificationReport. A Summary combines
the two reports.
*/
package operations
