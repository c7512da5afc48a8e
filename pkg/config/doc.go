// Package config fills env-tagged structs from the process environment.
//
// A .env file in the working directory is read once on first use; variables
// already present in the environment win over the file. After parsing, a
// struct that implements Validator is validated so constructors receive
// configuration that has already been checked.
//
//	var cfg billing.StripeConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
