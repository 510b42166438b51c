package flow

// RetryPolicy decides how a retry controller responds when an atom in its
// scope fails.
//
// attempts is the number of times the controller has executed so far; it
// is tracked by the retry action and starts at 1 once the flow has run the
// controller for the first time.
type RetryPolicy interface {
	OnFailure(attempts int, failed Atom, failure *Failure) Decision
}

// PolicyFunc adapts a plain function to the RetryPolicy interface.
type PolicyFunc func(attempts int, failed Atom, failure *Failure) Decision

// OnFailure implements RetryPolicy.
func (f PolicyFunc) OnFailure(attempts int, failed Atom, failure *Failure) Decision {
	return f(attempts, failed, failure)
}

// AlwaysRevert escalates every failure to the enclosing controller, or to
// a full flow revert when there is none.
var AlwaysRevert RetryPolicy = PolicyFunc(func(int, Atom, *Failure) Decision {
	return DecideRevert
})

// AlwaysRevertAll reverts the whole flow on the first failure in scope.
var AlwaysRevertAll RetryPolicy = PolicyFunc(func(int, Atom, *Failure) Decision {
	return DecideRevertAll
})

// Times retries the subflow until the controller has executed n times,
// then escalates.
func Times(n int) RetryPolicy {
	return PolicyFunc(func(attempts int, _ Atom, _ *Failure) Decision {
		if attempts < n {
			return DecideRetry
		}
		return DecideRevert
	})
}
