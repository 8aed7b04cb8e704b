// Package plan turns YAML test plans into runnable test assemblies.
//
// A plan declares collections of classes whose tests are shell commands:
//
//	name: api
//	fixtures:
//	  - name: server
//	    setup: ./start-server.sh
//	    teardown: ./stop-server.sh
//	collections:
//	  - name: users
//	    classes:
//	      - name: UserTests
//	        setup: mkdir -p tmp
//	        teardown: rm -rf tmp
//	        tests:
//	          - name: create
//	            run: curl -s {{host}}/users -d '{"name":"{{user}}"}'
//	            cases:
//	              - args: {user: alice}
//	              - args: {user: bob}
//	            expect:
//	              json:
//	                name: "{{user}}"
//	            capture:
//	              userId: id
//
// Fixtures run once per scope, class setup and teardown run around every
// test, and captured values become variables for the tests that follow.
package plan
