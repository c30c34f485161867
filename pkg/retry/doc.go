// Package retry runs an operation until it succeeds, with exponential or
// constant backoff between attempts.
//
// The broker connection loop retries forever with a one-second delay and
// gives up only on errors marked NonRetryable:
//
//	err := retry.Do(ctx, retry.Forever(time.Second), func() error {
//	    if err := client.Connect(ctx); err != nil {
//	        if !errors.IsTransient(err) {
//	            return retry.NonRetryable(err)
//	        }
//	        return err
//	    }
//	    return nil
//	})
//
// Do honours context cancellation both between attempts and while sleeping.
package retry
