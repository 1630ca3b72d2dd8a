package idpauth

import "net/http"

// CallbackHandler returns an http.HandlerFunc for the page the widget
// redirects back to. It completes rd and routes to the appropriate callback.
func CallbackHandler(
	rd *Redirect,
	onSuccess func(uc *UserCredential, w http.ResponseWriter, r *http.Request),
	onError func(err error, w http.ResponseWriter, r *http.Request),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uc, err := rd.Complete(r.Context())
		if err != nil {
			onError(err, w, r)
			return
		}

		onSuccess(uc, w, r)
	}
}
